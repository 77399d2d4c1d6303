// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package hive

import (
	"fmt"
	"strconv"
	"time"

	"github.com/creachadair/hive/entity"
	"github.com/creachadair/hive/markup"
)

// HistoryParam is the name of the parameter that requests history reporting
// for an invoke. Its value identifies the invoke in the report.
const HistoryParam = "invoke_history_uid"

// ReportHistory is the listener of the invoke that carries a History back to
// the peer that requested it.
const ReportHistory = "reportInvokeHistory"

// A History records when a peer started and finished handling one invoke.
type History struct {
	UID      string
	Listener string
	Start    time.Time
	End      time.Time // zero until Notify is called
}

// NewHistory constructs a history for iv, identified by uid, starting at the
// given time.
func NewHistory(uid string, iv *Invoke, start time.Time) *History {
	return &History{UID: uid, Listener: iv.Listener(), Start: start}
}

// Notify records the end time of h.
func (h *History) Notify(end time.Time) { h.End = end }

// Elapsed reports the time between the start and end of h, or 0 if h has not
// ended.
func (h *History) Elapsed() time.Duration {
	if h.End.IsZero() {
		return 0
	}
	return h.End.Sub(h.Start)
}

// ToInvoke returns a ReportHistory invoke carrying h as its only argument.
func (h *History) ToInvoke() *Invoke { return NewInvoke(ReportHistory, h) }

// Tag implements part of the [entity.Entity] interface.
func (h *History) Tag() string { return "invokeHistory" }

// Key implements part of the [entity.Entity] interface. It returns the UID.
func (h *History) Key() string { return h.UID }

// Construct implements part of the [entity.Entity] interface.
func (h *History) Construct(n *markup.Node) error {
	if n.Tag() != h.Tag() {
		return &entity.SchemaError{Want: h.Tag(), Got: n.Tag()}
	}
	r := entity.Read(n)
	uid := r.Require("uid")
	listener := r.String("listener", "")
	start := r.Time("startTime", time.Time{})
	end := r.Time("endTime", time.Time{})
	if err := r.Err(); err != nil {
		return err
	}
	*h = History{UID: uid, Listener: listener, Start: start, End: end}
	return nil
}

// ToXML implements part of the [entity.Entity] interface.
func (h *History) ToXML() *markup.Node {
	n := markup.New(h.Tag()).
		SetProperty("uid", h.UID).
		SetProperty("listener", h.Listener).
		SetProperty("startTime", h.Start.Format(time.RFC3339Nano))
	if !h.End.IsZero() {
		n.SetProperty("endTime", h.End.Format(time.RFC3339Nano))
	}
	return n
}

// historyUID renders the value of a history parameter as a string.
func historyUID(p *Parameter) string {
	switch v := p.Value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case *markup.Node:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
