// Package passes decides when a multi-pass job has reached a fixed point.
//
// A Detector wraps the provider stack and watches every open the engine
// issues during a pass. At the end of the pass it compares what was read
// against what was written in the same pass and against what the job knew
// before the pass began. If any file the pass read would now read
// differently, another pass is needed.
//
// A Driver owns the loop: it re-invokes the engine until the detector
// reports convergence or the pass ceiling is reached. Hitting the ceiling
// is reported as a warning, not a failure; the last pass's output is used
// as is. State can be persisted between jobs through a StateStore so that
// incremental and watch workflows start from what the previous job saw.
package passes
