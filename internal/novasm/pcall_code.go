package novasm

import "fmt"

// PCallCode selects the platform call performed by an OpPCall instruction.
type PCallCode uint8

const (
	PCallConWriteChar PCallCode = iota + 1
	PCallConWriteString
	PCallConWriteStringLine
	PCallConReadChar
	PCallConReadStringLine

	PCallStreamCheckValid
	PCallStreamReadString
	PCallStreamReadChar
	PCallStreamWriteString
	PCallStreamWriteChar
	PCallStreamFlush
	PCallStreamSetOptions
	PCallStreamUnsetOptions

	PCallFileOpenStream
	PCallFileRemove

	PCallTcpOpenCon
	PCallTcpStartServer
	PCallTcpAcceptCon
	PCallIpLookupAddress

	PCallConsoleOpenStream

	PCallTermSetOptions
	PCallTermUnsetOptions
	PCallTermGetWidth
	PCallTermGetHeight

	PCallGetEnvArg
	PCallGetEnvArgCount
	PCallGetEnvVar

	PCallClockMicroSinceEpoch
	PCallClockNanoSteady

	PCallSleepNano
	PCallAssert
)

var pcallNames = map[PCallCode]string{
	PCallConWriteChar:       "con-write-char",
	PCallConWriteString:     "con-write-string",
	PCallConWriteStringLine: "con-write-string-line",
	PCallConReadChar:        "con-read-char",
	PCallConReadStringLine:  "con-read-string-line",

	PCallStreamCheckValid:   "stream-check-valid",
	PCallStreamReadString:   "stream-read-string",
	PCallStreamReadChar:     "stream-read-char",
	PCallStreamWriteString:  "stream-write-string",
	PCallStreamWriteChar:    "stream-write-char",
	PCallStreamFlush:        "stream-flush",
	PCallStreamSetOptions:   "stream-set-options",
	PCallStreamUnsetOptions: "stream-unset-options",

	PCallFileOpenStream: "file-open-stream",
	PCallFileRemove:     "file-remove",

	PCallTcpOpenCon:      "tcp-open-con",
	PCallTcpStartServer:  "tcp-start-server",
	PCallTcpAcceptCon:    "tcp-accept-con",
	PCallIpLookupAddress: "ip-lookup-address",

	PCallConsoleOpenStream: "console-open-stream",

	PCallTermSetOptions:   "term-set-options",
	PCallTermUnsetOptions: "term-unset-options",
	PCallTermGetWidth:     "term-get-width",
	PCallTermGetHeight:    "term-get-height",

	PCallGetEnvArg:      "get-env-arg",
	PCallGetEnvArgCount: "get-env-arg-count",
	PCallGetEnvVar:      "get-env-var",

	PCallClockMicroSinceEpoch: "clock-micro-since-epoch",
	PCallClockNanoSteady:      "clock-nano-steady",

	PCallSleepNano: "sleep-nano",
	PCallAssert:    "assert",
}

// String returns the kebab-case name of the platform call.
func (c PCallCode) String() string {
	if name, ok := pcallNames[c]; ok {
		return name
	}
	return fmt.Sprintf("pcall(%d)", uint8(c))
}

// Valid reports whether c names a known platform call.
func (c PCallCode) Valid() bool {
	_, ok := pcallNames[c]
	return ok
}

// ParsePCallCode looks a platform call up by its kebab-case name.
func ParsePCallCode(name string) (PCallCode, bool) {
	for code, n := range pcallNames {
		if n == name {
			return code, true
		}
	}
	return 0, false
}
