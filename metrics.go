// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package hive

import "expvar"

// hiveMetrics record connector and routing activity counters.
type hiveMetrics struct {
	invokeSent     expvar.Int
	invokeRecv     expvar.Int
	invokeUnrouted expvar.Int // received but matched no handler
	bytesRecv      expvar.Int
	connects       expvar.Int // connections opened
	connectsFailed expvar.Int // dial or accept failures
	protocolErrors expvar.Int // malformed or undecodable messages
	connOpen       expvar.Int // gauge

	emap *expvar.Map
}

var rootMetrics = newHiveMetrics()

func newHiveMetrics() *hiveMetrics {
	hm := &hiveMetrics{emap: new(expvar.Map)}
	hm.emap.Set("invokes_sent", &hm.invokeSent)
	hm.emap.Set("invokes_received", &hm.invokeRecv)
	hm.emap.Set("invokes_unrouted", &hm.invokeUnrouted)
	hm.emap.Set("bytes_received", &hm.bytesRecv)
	hm.emap.Set("connects", &hm.connects)
	hm.emap.Set("connects_failed", &hm.connectsFailed)
	hm.emap.Set("protocol_errors", &hm.protocolErrors)
	hm.emap.Set("connectors_open", &hm.connOpen)
	return hm
}
