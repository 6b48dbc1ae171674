// Package runlog appends a human-readable record of each sync session to a
// text file, one timestamped line per event.
package runlog

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/plansync/internal/model"
)

// Log is an append-only session log file.
type Log struct {
	file   *os.File
	logger *zap.Logger
}

// Open opens path for appending, creating it and its directory if needed.
// Extra zap options (for example zap.WithClock) are applied to the logger.
func Open(path string, opts ...zap.Option) (*Log, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "runlog: create dir %s", dir)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, eris.Wrapf(err, "runlog: open %s", path)
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:          "ts",
		LevelKey:         "level",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(f), zapcore.DebugLevel)
	return &Log{file: f, logger: zap.New(core, opts...)}, nil
}

// Write appends the session: a header line, one line per change record,
// warning and error, and a closing status line.
func (l *Log) Write(sess *model.Session) error {
	log := l.logger.With(zap.String("session", sess.ID))

	log.Info("sync session",
		zap.String("mode", string(sess.Mode)),
		zap.Time("started_at", sess.StartedAt),
		zap.Strings("regions", sess.RegionsProcessed),
		zap.Int("total_plans", sess.TotalPlansFound),
		zap.Int("unique_plans", sess.UniquePlans),
		zap.String("provenance", string(sess.Provenance)),
	)
	for _, c := range sess.NewPlans {
		log.Info("new plan (pending review)", changeFields(c)...)
	}
	for _, c := range sess.UpdatedPlans {
		log.Info("updated plan", changeFields(c)...)
	}
	for _, c := range sess.RemovedPlans {
		log.Info("removed plan", changeFields(c)...)
	}
	for _, w := range sess.Warnings {
		log.Warn(w)
	}
	for _, e := range sess.Errors {
		log.Error(e)
	}

	end := []zap.Field{
		zap.String("status", string(sess.Status)),
		zap.Int("new", len(sess.NewPlans)),
		zap.Int("updated", len(sess.UpdatedPlans)),
		zap.Int("removed", len(sess.RemovedPlans)),
	}
	if sess.CompletedAt != nil {
		end = append(end, zap.Duration("elapsed", sess.CompletedAt.Sub(sess.StartedAt)))
	}
	if sess.Status == model.SessionFailed {
		log.Error("sync session failed", append(end, zap.String("error", sess.Error))...)
	} else {
		log.Info("sync session finished", end...)
	}

	if err := l.logger.Sync(); err != nil {
		return eris.Wrap(err, "runlog: sync")
	}
	return nil
}

// Close flushes and closes the file.
func (l *Log) Close() error {
	_ = l.logger.Sync()
	return l.file.Close()
}

// Append opens path, writes the session and closes the file.
func Append(path string, sess *model.Session) error {
	l, err := Open(path)
	if err != nil {
		return err
	}
	if err := l.Write(sess); err != nil {
		_ = l.Close()
		return err
	}
	return eris.Wrap(l.Close(), "runlog: close")
}

func changeFields(c model.ChangeRecord) []zap.Field {
	fields := []zap.Field{
		zap.String("provider", c.ProviderName),
		zap.String("plan", c.PlanName),
	}
	if c.EntryID != 0 {
		fields = append(fields, zap.Int64("entry_id", c.EntryID))
	}
	if c.OldRate != nil {
		fields = append(fields, zap.Float64("old_rate", *c.OldRate))
	}
	if c.NewRate != nil {
		fields = append(fields, zap.Float64("new_rate", *c.NewRate))
	}
	if c.Note != "" {
		fields = append(fields, zap.String("note", c.Note))
	}
	return fields
}
