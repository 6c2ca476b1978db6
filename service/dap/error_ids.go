package dap

// Unique identifiers for messages returned for errors from requests.
// These values are not mandated by DAP (other than the uniqueness
// requirement), so each implementation is free to choose their own.
const (
	UnsupportedCommand int = 9999
	InternalError      int = 8888
	NotYetImplemented  int = 7777

	FailedToLaunch     = 3000
	FailedToAttach     = 3001
	FailedToConfigure  = 3002
	FailedToContinue   = 3003
	FailedToStep       = 3004
	FailedToPause      = 3005
	FailedToTerminate  = 3006
	FailedToDisconnect = 3007

	UnableToSetBreakpoints     = 2002
	UnableToDisplayThreads     = 2003
	UnableToProduceStackTrace  = 2004
	UnableToEvaluateExpression = 2009
	UnableToDisassemble        = 2010
	UnableToRunCommand         = 2011
)
