package plugins

// State — состояние жизненного цикла плагина.
type State string

// Состояния плагина.
const (
	StateUnloaded    State = "UNLOADED"
	StateLoading     State = "LOADING"
	StateReady       State = "READY"
	StateTearingDown State = "TEARING_DOWN"
)
