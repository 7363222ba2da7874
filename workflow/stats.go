package workflow

import "time"

// ExecutionStats aggregates step results.
type ExecutionStats struct {
	TotalSteps           int           `json:"totalSteps"`
	Successful           int           `json:"successful"`
	Failed               int           `json:"failed"`
	TotalTime            time.Duration `json:"totalTime"`
	TotalTokens          int           `json:"totalTokens"`
	AverageTimePerStep   time.Duration `json:"averageTimePerStep"`
	AverageTokensPerStep float64       `json:"averageTokensPerStep"`
}

// Stats summarises results. An empty slice yields zero values.
func Stats(results []ExecutionResult) ExecutionStats {
	st := ExecutionStats{TotalSteps: len(results)}
	for _, r := range results {
		if r.Success {
			st.Successful++
		} else {
			st.Failed++
		}
		st.TotalTime += r.ExecutionTime
		st.TotalTokens += r.Usage.Total()
	}
	if st.TotalSteps > 0 {
		st.AverageTimePerStep = st.TotalTime / time.Duration(st.TotalSteps)
		st.AverageTokensPerStep = float64(st.TotalTokens) / float64(st.TotalSteps)
	}
	return st
}
