// Package interfaces defines the core interfaces used throughout the application.
package interfaces

// ActivityNotifier receives "activity observed now" pulses.
type ActivityNotifier interface {
	NotifyActivity()
}

// OutputHandler processes output lines.
type OutputHandler interface {
	HandleLine(line string)
}

// DataHandler processes raw output data.
type DataHandler interface {
	OutputHandler
	HandleData(data []byte)
}

// RateLimiter limits notification frequency.
type RateLimiter interface {
	Allow() bool
	Reset()
}

// StatusReporter reports notification delivery progress.
type StatusReporter interface {
	ReportSending()
	ReportSuccess()
	ReportFailure()
}
