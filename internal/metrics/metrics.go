package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CheckIns counts recorded check-ins by status and verification outcome. The
// verified="false" series makes the volume of lenient (unverified) check-ins
// visible without blocking them.
var CheckIns = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "absenin_checkins_total",
	Help: "Attendance check-ins recorded.",
}, []string{"status", "verified"})

// CheckOuts counts completed check-outs by verification outcome.
var CheckOuts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "absenin_checkouts_total",
	Help: "Attendance check-outs recorded.",
}, []string{"verified"})

// Enrollments counts face enrollment calls by result.
var Enrollments = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "absenin_face_enrollments_total",
	Help: "Face enrollment attempts.",
}, []string{"result"})

// RecognitionFailures counts provider faults downgraded to unverified results.
var RecognitionFailures = promauto.NewCounter(prometheus.CounterOpts{
	Name: "absenin_face_recognition_failures_total",
	Help: "Face provider errors during identify/verify.",
})
