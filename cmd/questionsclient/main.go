package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"entrevistas-live-client/internal/api/rest"
	"entrevistas-live-client/internal/config"
	"entrevistas-live-client/internal/models"
	"entrevistas-live-client/internal/observability/logging"
)

func main() {
	cfg := config.Load()

	posting := flag.String("posting", "-", "Job posting text file, - for stdin")
	company := flag.Bool("company", false, "Research the employer")
	market := flag.Bool("market", false, "Analyze the job market")
	catalog := flag.Bool("catalog", false, "Print the question catalog and exit")
	generatorURL := flag.String("generator", cfg.Backend.GeneratorURL, "Question generator base URL")
	apiURL := flag.String("api", cfg.Backend.APIURL, "Backend API base URL")
	flag.Parse()

	logging.Init(logging.Config{Level: "warn", Format: "console"})

	client := rest.NewClient(rest.Config{
		GeneratorURL: *generatorURL,
		CatalogURL:   *apiURL,
		Timeout:      cfg.Backend.HTTPTimeout,
	})
	ctx := context.Background()

	if *catalog {
		questions, err := client.Catalog(ctx)
		if err != nil {
			fail(err)
		}
		for i, q := range questions {
			fmt.Printf("%2d. [%s] %s\n", i+1, q.Category, q.Question)
		}
		return
	}

	text, err := readPosting(*posting)
	if err != nil {
		log.Fatalf("Failed to read job posting: %v", err)
	}

	resp, err := client.Generate(ctx, models.GenerateRequest{
		Text:           text,
		CompanySearch:  *company,
		MarketAnalysis: *market,
	})
	if err != nil {
		fail(err)
	}
	printResponse(resp)
}

func readPosting(path string) (string, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	return string(raw), err
}

func fail(err error) {
	var apiErr *rest.APIError
	if errors.As(err, &apiErr) {
		log.Fatalf("Error: %s", apiErr.Message)
	}
	log.Fatalf("Request failed: %v", err)
}

func printResponse(r *models.GenerateResponse) {
	p := r.Proposal
	fmt.Printf("%s, %s\n", p.Role, p.Employer)
	if p.Requirements != "" {
		fmt.Printf("Requisitos: %s\n", p.Requirements)
	}

	fmt.Println("\nPreguntas:")
	for i, q := range r.Questions {
		fmt.Printf("%2d. %s\n", i+1, q)
	}

	if len(r.Tips) > 0 {
		fmt.Println("\nConsejos:")
		for _, tip := range r.Tips {
			fmt.Printf(" - %s\n", tip)
		}
	}

	fmt.Println()
	printSearch("Empresa", r.Searches.Company)
	printSearch("Mercado", r.Searches.Market)
	fmt.Printf("Calidad: %s, %d fuentes en %.1fs\n",
		r.Metadata.Quality, r.Metadata.TotalSources, r.Metadata.TotalSeconds)
}

func printSearch(label string, s models.SearchDetail) {
	if !s.Activated {
		fmt.Printf("%s: desactivada\n", label)
		return
	}
	fmt.Printf("%s: %d fuentes, %.1fs\n", label, s.Sources, s.ElapsedSeconds)
	if summary := strings.TrimSpace(s.Summary); summary != "" {
		fmt.Printf("  %s\n", summary)
	}
}
