package noderegistry

// Usage restricts which programs should accept a given node backend.
//
// Backends register themselves via init() and are enabled in a binary by
// importing the backend package (often as a blank import).
type Usage uint8

const (
	// UsageCLI marks backends available to the ipfs-simple CLI.
	UsageCLI Usage = 1 << iota
	// UsageDaemon marks backends a node daemon (ipfs-simple-noded) can serve.
	UsageDaemon
	// UsageLibrary marks backends a client may construct from a config file.
	UsageLibrary
)

func (u Usage) allows(want Usage) bool { return u&want != 0 }
