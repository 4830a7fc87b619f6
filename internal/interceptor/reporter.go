package interceptor

import "go.uber.org/zap"

const (
	StageCapture  = "capture"
	StageDecide   = "decide"
	StageBuild    = "build"
	StageDispatch = "dispatch"
	StagePanic    = "panic"
)

// ErrorReporter receives every error the interceptor swallows.
type ErrorReporter interface {
	Report(id string, stage string, err error)
}

type ReporterFunc func(id string, stage string, err error)

func (f ReporterFunc) Report(id string, stage string, err error) {
	f(id, stage, err)
}

// ZapReporter logs reported errors as warnings. The id goes to request_id,
// never to the correlation field, so reports stay out of trace collectors.
type ZapReporter struct {
	logger *zap.Logger
}

func NewZapReporter(logger *zap.Logger) *ZapReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapReporter{logger: logger}
}

func (r *ZapReporter) Report(id string, stage string, err error) {
	r.logger.Warn("logpack error",
		zap.String("request_id", id),
		zap.String("stage", stage),
		zap.Error(err),
	)
}
