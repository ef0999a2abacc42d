package types

// Chunk is one size-bounded slice of a split source file.
type Chunk struct {
	Index int    `json:"index"`
	Label string `json:"label"`
	Name  string `json:"name"`
	Path  string `json:"path"`
	Size  int64  `json:"size"`
}

// SendRequest asks a sink to transmit one file to a destination.
// Progress, when set, receives the cumulative number of bytes sent.
type SendRequest struct {
	Destination string
	Path        string
	FileName    string
	Caption     string
	Size        int64
	Progress    func(sent int64)
}
