package pusher

// pusherErrorDescriptions carries the full Pusher error code table from
// connection.py's ERROR_CODES, for richer log output and for the Description
// of the *PusherError attached to the re-emitted "error" event. The fatal vs.
// retryable classification is driven purely by the numeric range (spec.md
// §4.6/§6), never by table membership — codes missing from this table are
// still classified correctly, just logged without a description.
var pusherErrorDescriptions = map[int]string{
	4000: "application only accepts SSL connections",
	4001: "application does not exist",
	4003: "application disabled",
	4004: "application is over connection quota",
	4005: "path not found",
	4006: "invalid version string format",
	4007: "unsupported protocol version",
	4008: "no protocol version supplied",
	4100: "over capacity",
	4200: "generic reconnect immediately",
	4201: "pong reply not received in time, reconnect",
	4202: "closed after inactivity, reconnect",
	4301: "client event rejected due to rate limit",
}
