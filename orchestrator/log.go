package orchestrator

import (
	"github.com/sirupsen/logrus"
)

// log is the package-level structured logger runWaves emits node state
// transitions through, set up the same way the teacher's longer-running
// server paths configure logrus.StandardLogger(), rather than adding a
// second logging framework for what is, elsewhere in this module, plain
// %w-wrapped errors.
var log = func() *logrus.Logger {
	l := logrus.StandardLogger()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableSorting: true})
	return l
}()

func logNodeResult(region string, nr NodeResult) {
	entry := log.WithFields(logrus.Fields{
		"region":      region,
		"kind":        nr.Kind,
		"status":      nr.Status,
		"cached":      nr.Cached,
		"attempts":    nr.Attempts,
		"fingerprint": nr.Fingerprint,
	})
	if nr.Err != nil {
		entry.WithError(nr.Err).Warn("node finished with error")
		return
	}
	entry.Info("node finished")
}

func logNodeBlocked(region string, kind Kind, failed Kind) {
	log.WithFields(logrus.Fields{
		"region":        region,
		"kind":          kind,
		"blocked_by":    failed,
	}).Warn("node blocked by upstream failure")
}
