package protocol

import logging "github.com/ipfs/go-log/v2"

const LoggerName = "rdt"

var log = logging.Logger(LoggerName)

// SetLogLevel sets the level of the protocol logger (debug, info, warn, error).
func SetLogLevel(level string) error {
	return logging.SetLogLevel(LoggerName, level)
}
