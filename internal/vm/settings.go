package vm

import "time"

// Settings are the tunables of one machine.
type Settings struct {
	GCInterval     int64 // bytes allocated between collection requests; <= 0 disables them
	HeapLimit      int64 // live byte cap; <= 0 means unlimited
	EvalStack      int   // values per executor
	ConstStack     int   // const slots per executor
	CallStack      int   // frames per executor
	ConnectTimeout time.Duration
}

// DefaultSettings returns the settings used when none are given.
func DefaultSettings() Settings {
	return Settings{
		GCInterval:     100 << 20,
		EvalStack:      4096,
		ConstStack:     4096,
		CallStack:      8192,
		ConnectTimeout: 5 * time.Second,
	}
}

func (s Settings) withDefaults() Settings {
	def := DefaultSettings()
	if s.EvalStack <= 0 {
		s.EvalStack = def.EvalStack
	}
	if s.ConstStack <= 0 {
		s.ConstStack = def.ConstStack
	}
	if s.CallStack <= 0 {
		s.CallStack = def.CallStack
	}
	if s.ConnectTimeout <= 0 {
		s.ConnectTimeout = def.ConnectTimeout
	}
	return s
}
