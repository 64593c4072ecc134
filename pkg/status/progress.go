package status

// Progress is returned as a struct because we may add more to it later.
// It is designed for wrappers (like a GUI) to be able to summarize the
// current status without parsing log output.
type Progress struct {
	CurrentState State  // current state, i.e. PersistOrders
	Summary      string // text based representation, i.e. "1200/5000 records persistOrders"
}
