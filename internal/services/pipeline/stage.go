package pipeline

type Stage int

const (
	StageIdle Stage = iota
	StageFetching
	StageNormalizing
	StageClassifying
	StageResolving
	StageMapping
	StageReady
)

var stageNames = [...]string{"idle", "fetching", "normalizing", "classifying", "resolving", "mapping", "ready"}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
