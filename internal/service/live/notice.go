package live

import (
	"errors"
	"time"

	"entrevistas-live-client/internal/service/capture"
	"entrevistas-live-client/internal/service/connection"
)

// NoticeKind classifies user-visible feedback.
type NoticeKind string

const (
	NoticePermission   NoticeKind = "permission"
	NoticeConnection   NoticeKind = "connection"
	NoticeTransmission NoticeKind = "transmission"
	NoticeServer       NoticeKind = "server"
	NoticeLiveness     NoticeKind = "liveness"
)

const maxNotices = 50

// Notice is feedback for the person being interviewed.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
	Time    time.Time  `json:"time"`
}

// noticeKindOf maps an error to the notice it produces.
func noticeKindOf(err error) (NoticeKind, bool) {
	var (
		permErr *capture.PermissionError
		connErr *connection.ConnectionError
		txErr   *connection.TransmissionError
		srvErr  *connection.ServerError
	)
	switch {
	case errors.As(err, &permErr):
		return NoticePermission, true
	case errors.As(err, &txErr):
		return NoticeTransmission, true
	case errors.As(err, &connErr):
		return NoticeConnection, true
	case errors.As(err, &srvErr):
		return NoticeServer, true
	default:
		return "", false
	}
}

// ring keeps the most recent notices.
type ring struct {
	items []Notice
}

func (r *ring) add(n Notice) {
	r.items = append(r.items, n)
	if len(r.items) > maxNotices {
		r.items = r.items[len(r.items)-maxNotices:]
	}
}

func (r *ring) list() []Notice {
	out := make([]Notice, len(r.items))
	copy(out, r.items)
	return out
}
