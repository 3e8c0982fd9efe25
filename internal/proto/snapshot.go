package proto

// Snapshot is the full content of the store. It is also the export file
// format.
type Snapshot struct {
	Sessions []Session `json:"sessions"`
	Messages []Message `json:"messages"`
}

// Stats describes the size of the store.
type Stats struct {
	SessionCount int    `json:"sessionCount"`
	MessageCount int    `json:"messageCount"`
	ApproxBytes  int64  `json:"approxBytes"`
	Checksum     string `json:"checksum"`
}
