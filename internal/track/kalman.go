// Package track provides Kalman-filtered hand position tracking with
// short-horizon motion prediction.
package track

import (
	"errors"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/ayusman/mudra/internal/detector"
)

// ErrBadMatrixSize is returned when a matrix inversion is attempted on a
// size the filter does not support. The innovation covariance is always
// 3x3; anything else is a programming error, not a recoverable condition.
var ErrBadMatrixSize = errors.New("matrix inverse: unsupported size")

const (
	// stateSize is the filter state dimension: position and velocity over
	// three axes.
	stateSize = 6

	// measureSize is the observation dimension: position only.
	measureSize = 3

	// minDeterminant is the magnitude below which the innovation
	// covariance counts as singular and the inverse falls back to a
	// small identity instead of producing NaN or Infinity.
	minDeterminant = 1e-10

	// singularInverseScale is the diagonal value of the fallback inverse
	// used for near-singular innovation covariances. Small enough to keep
	// the Kalman gain modest.
	singularInverseScale = 1e-3

	// covTraceScale converts the position-covariance trace into a
	// confidence: 1/(1 + trace/scale).
	covTraceScale = 100.0

	// innovationScale converts the rolling mean innovation magnitude into
	// a process-noise multiplier: 1 + mean/scale.
	innovationScale = 10.0

	// maxInnovations bounds the stored innovation history.
	maxInnovations = 20

	// recentInnovations is how many of the newest stored innovations feed
	// the adaptive process noise.
	recentInnovations = 5

	// defaultFrameInterval stands in for the update interval when wall
	// clock deltas are unusable (first frame, clock skew).
	defaultFrameInterval = 1.0 / 30.0
)

// Velocity is a per-axis velocity in pixels per second.
type Velocity struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Magnitude returns the Euclidean norm of the velocity.
func (v Velocity) Magnitude() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Estimate is a filtered state snapshot: where the hand is, how fast it is
// moving, and how much the filter trusts that.
type Estimate struct {
	Position   detector.Point3D `json:"position"`
	Velocity   Velocity         `json:"velocity"`
	Confidence float64          `json:"confidence"`
}

// KalmanConfig holds the filter's noise model parameters.
type KalmanConfig struct {
	// ProcessNoise is the assumed hand acceleration standard deviation in
	// px/s²; it drives the constant-velocity model's process noise. Hands
	// change direction hard, so this is large.
	ProcessNoise float64

	// MeasurementNoise is the base magnitude of the measurement-noise
	// covariance R, in squared pixels.
	MeasurementNoise float64

	// InitialUncertainty seeds the position diagonal of the covariance at
	// initialization, scaled up for low-confidence first measurements.
	InitialUncertainty float64

	// AdaptiveNoise enables confidence-scaled R and innovation-scaled Q.
	AdaptiveNoise bool

	// PredictionDecay is the exponential decay rate applied to confidence
	// when extrapolating into the future.
	PredictionDecay float64
}

// DefaultKalmanConfig returns noise parameters tuned for webcam-scale pixel
// coordinates at 30-60 fps.
func DefaultKalmanConfig() KalmanConfig {
	return KalmanConfig{
		ProcessNoise:       1500.0,
		MeasurementNoise:   25.0,
		InitialUncertainty: 100.0,
		AdaptiveNoise:      true,
		PredictionDecay:    2.0,
	}
}

// KalmanFilter is a constant-velocity filter over 3D position. The state
// vector is [x y z vx vy vz]; only position is observed.
type KalmanFilter struct {
	config KalmanConfig

	x           *mat.VecDense // state, 6x1
	p           *mat.Dense    // covariance, 6x6
	initialized bool
	lastUpdate  time.Time

	// innovation magnitudes from recent updates, newest last
	innovations []float64
}

// NewKalmanFilter creates an uninitialized filter.
func NewKalmanFilter(config KalmanConfig) *KalmanFilter {
	return &KalmanFilter{
		config: config,
		x:      mat.NewVecDense(stateSize, nil),
		p:      mat.NewDense(stateSize, stateSize, nil),
	}
}

// Initialized reports whether the filter has received a first measurement.
func (k *KalmanFilter) Initialized() bool {
	return k.initialized
}

// Initialize seeds the filter: position from the measurement, velocity
// zero. Low-confidence measurements start with a wider covariance.
func (k *KalmanFilter) Initialize(m detector.Point3D, confidence float64) {
	k.x.Zero()
	k.x.SetVec(0, m.X)
	k.x.SetVec(1, m.Y)
	k.x.SetVec(2, m.Z)

	posVar := k.config.InitialUncertainty / confidenceFloor(confidence)
	velVar := k.config.InitialUncertainty * 4

	k.p.Zero()
	for i := 0; i < measureSize; i++ {
		k.p.Set(i, i, posVar)
		k.p.Set(i+measureSize, i+measureSize, velVar)
	}

	k.initialized = true
	k.innovations = nil
}

// Predict advances the state dt seconds using the constant-velocity model
// and inflates the covariance by the process noise. The filter state is
// mutated. Returns the predicted estimate.
func (k *KalmanFilter) Predict(dt float64) Estimate {
	if !k.initialized || dt <= 0 {
		return k.estimate()
	}

	f := k.transition(dt)
	q := k.processNoise(dt)

	// x = F x
	var xp mat.VecDense
	xp.MulVec(f, k.x)
	k.x.CopyVec(&xp)

	// P = F P Ft + Q
	var fp, fpft mat.Dense
	fp.Mul(f, k.p)
	fpft.Mul(&fp, f.T())
	fpft.Add(&fpft, q)
	k.p.Copy(&fpft)

	return k.estimate()
}

// Update feeds one measurement into the filter. The very first observation
// initializes the filter and is echoed back as the estimate. Subsequent
// calls predict over the wall-clock delta since the previous update and
// correct the state with the measurement, weighted by its confidence.
func (k *KalmanFilter) Update(m detector.Point3D, confidence float64, now time.Time) (Estimate, error) {
	if !k.initialized {
		k.Initialize(m, confidence)
		k.lastUpdate = now
		return Estimate{Position: m, Confidence: clampConfidence(confidence)}, nil
	}

	dt := now.Sub(k.lastUpdate).Seconds()
	if dt <= 0 {
		dt = defaultFrameInterval
	}
	k.lastUpdate = now

	k.Predict(dt)

	// Innovation: measurement minus predicted observation.
	y := mat.NewVecDense(measureSize, []float64{
		m.X - k.x.AtVec(0),
		m.Y - k.x.AtVec(1),
		m.Z - k.x.AtVec(2),
	})
	k.recordInnovation(y)

	// S = H P Ht + R. With H = [I 0] this is the position block of P plus
	// the measurement noise on the diagonal.
	r := k.measurementNoise(confidence)
	s := mat.NewDense(measureSize, measureSize, nil)
	for i := 0; i < measureSize; i++ {
		for j := 0; j < measureSize; j++ {
			s.Set(i, j, k.p.At(i, j))
		}
		s.Set(i, i, s.At(i, i)+r)
	}

	sInv, err := invertMatrix(s)
	if err != nil {
		return k.estimate(), err
	}

	// K = P Ht S^-1; P Ht is the left 6x3 block of P.
	ph := mat.NewDense(stateSize, measureSize, nil)
	for i := 0; i < stateSize; i++ {
		for j := 0; j < measureSize; j++ {
			ph.Set(i, j, k.p.At(i, j))
		}
	}
	var gain mat.Dense
	gain.Mul(ph, sInv)

	// x = x + K y
	var ky mat.VecDense
	ky.MulVec(&gain, y)
	k.x.AddVec(k.x, &ky)

	// P = (I - K H) P
	ikh := eye(stateSize)
	for i := 0; i < stateSize; i++ {
		for j := 0; j < measureSize; j++ {
			ikh.Set(i, j, ikh.At(i, j)-gain.At(i, j))
		}
	}
	var np mat.Dense
	np.Mul(ikh, k.p)
	k.p.Copy(&np)

	return k.estimate(), nil
}

// PredictFuture extrapolates the current state ahead seconds without
// mutating the filter. Confidence decays exponentially with the horizon.
func (k *KalmanFilter) PredictFuture(ahead float64) Estimate {
	e := k.estimate()
	if !k.initialized || ahead <= 0 {
		return e
	}

	e.Position.X += e.Velocity.X * ahead
	e.Position.Y += e.Velocity.Y * ahead
	e.Position.Z += e.Velocity.Z * ahead
	e.Confidence *= math.Exp(-k.config.PredictionDecay * ahead)
	return e
}

// Reset returns the filter to uninitialized.
func (k *KalmanFilter) Reset() {
	k.x.Zero()
	k.p.Zero()
	k.initialized = false
	k.lastUpdate = time.Time{}
	k.innovations = nil
}

// estimate snapshots the current state with a confidence derived from the
// position-covariance trace.
func (k *KalmanFilter) estimate() Estimate {
	if !k.initialized {
		return Estimate{}
	}

	trace := k.p.At(0, 0) + k.p.At(1, 1) + k.p.At(2, 2)
	if trace < 0 {
		trace = 0
	}

	return Estimate{
		Position: detector.Point3D{
			X: k.x.AtVec(0),
			Y: k.x.AtVec(1),
			Z: k.x.AtVec(2),
		},
		Velocity: Velocity{
			X: k.x.AtVec(3),
			Y: k.x.AtVec(4),
			Z: k.x.AtVec(5),
		},
		Confidence: 1 / (1 + trace/covTraceScale),
	}
}

// transition builds the constant-velocity state transition matrix for dt.
func (k *KalmanFilter) transition(dt float64) *mat.Dense {
	f := eye(stateSize)
	for i := 0; i < measureSize; i++ {
		f.Set(i, i+measureSize, dt)
	}
	return f
}

// processNoise builds the discretized white-acceleration Q for dt, inflated
// by recent innovation magnitudes when adaptive noise is on: a filter that
// keeps being surprised assumes a less predictable hand.
func (k *KalmanFilter) processNoise(dt float64) *mat.Dense {
	scale := 1.0
	if k.config.AdaptiveNoise {
		if mean := k.recentInnovationMean(); mean > 0 {
			scale = 1 + mean/innovationScale
		}
	}

	accelVar := k.config.ProcessNoise * k.config.ProcessNoise * scale
	posQ := accelVar * dt * dt * dt * dt / 4
	velQ := accelVar * dt * dt
	crossQ := accelVar * dt * dt * dt / 2

	q := mat.NewDense(stateSize, stateSize, nil)
	for i := 0; i < measureSize; i++ {
		q.Set(i, i, posQ)
		q.Set(i+measureSize, i+measureSize, velQ)
		q.Set(i, i+measureSize, crossQ)
		q.Set(i+measureSize, i, crossQ)
	}
	return q
}

// measurementNoise returns the R diagonal for a measurement with the given
// confidence. Low-confidence detections are trusted less.
func (k *KalmanFilter) measurementNoise(confidence float64) float64 {
	r := k.config.MeasurementNoise
	if k.config.AdaptiveNoise {
		r /= confidenceFloor(confidence)
	}
	return r
}

func (k *KalmanFilter) recordInnovation(y *mat.VecDense) {
	magnitude := math.Sqrt(y.AtVec(0)*y.AtVec(0) + y.AtVec(1)*y.AtVec(1) + y.AtVec(2)*y.AtVec(2))
	k.innovations = append(k.innovations, magnitude)
	if len(k.innovations) > maxInnovations {
		k.innovations = k.innovations[len(k.innovations)-maxInnovations:]
	}
}

// recentInnovationMean returns the mean magnitude of the newest stored
// innovations, or 0 when none exist.
func (k *KalmanFilter) recentInnovationMean() float64 {
	n := len(k.innovations)
	if n == 0 {
		return 0
	}
	start := n - recentInnovations
	if start < 0 {
		start = 0
	}

	var sum float64
	for _, m := range k.innovations[start:] {
		sum += m
	}
	return sum / float64(n-start)
}

// invertMatrix inverts a 3x3 matrix exactly via cofactor expansion. A
// near-singular input yields a small scaled identity instead of NaN. Any
// other size returns ErrBadMatrixSize.
func invertMatrix(m *mat.Dense) (*mat.Dense, error) {
	r, c := m.Dims()
	if r != measureSize || c != measureSize {
		return nil, ErrBadMatrixSize
	}

	a, b, cc := m.At(0, 0), m.At(0, 1), m.At(0, 2)
	d, e, f := m.At(1, 0), m.At(1, 1), m.At(1, 2)
	g, h, i := m.At(2, 0), m.At(2, 1), m.At(2, 2)

	det := a*(e*i-f*h) - b*(d*i-f*g) + cc*(d*h-e*g)
	if math.Abs(det) < minDeterminant {
		fallback := mat.NewDense(measureSize, measureSize, nil)
		for j := 0; j < measureSize; j++ {
			fallback.Set(j, j, singularInverseScale)
		}
		return fallback, nil
	}

	inv := mat.NewDense(measureSize, measureSize, []float64{
		e*i - f*h, cc*h - b*i, b*f - cc*e,
		f*g - d*i, a*i - cc*g, cc*d - a*f,
		d*h - e*g, b*g - a*h, a*e - b*d,
	})
	inv.Scale(1/det, inv)
	return inv, nil
}

// eye returns an n x n identity matrix.
func eye(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// confidenceFloor clamps a confidence to [0.1, 1] for use as a divisor.
func confidenceFloor(confidence float64) float64 {
	if confidence < 0.1 {
		return 0.1
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

func clampConfidence(confidence float64) float64 {
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}
