package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ OperationStore = (*MemoryOperationStore)(nil)
	_ KeyValueCache  = (*MemoryCache)(nil)
	_ NamedMutex     = (*MemoryNamedMutex)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
