package service

// Server is a debug adapter serving the client of a listener.
type Server interface {
	Run()
	Stop()
}
