package iocli

//go:generate moq -out io_mock.go . IO

// IO is the terminal surface of the CLI
type IO interface {
	Println(a ...any)
	Printf(format string, a ...any)
	ReadInput(prompt string) (string, error)
	ReadPassword(prompt string) (string, error)
	Write(p []byte) (n int, err error)

	// IsTerminal reports whether output goes to an interactive terminal
	IsTerminal() bool
}
