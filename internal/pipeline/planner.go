package pipeline

// DefaultSegmentSeconds is the conversion window length used when no policy
// override is configured.
const DefaultSegmentSeconds = 30.0

// PlanSegments divides [0, duration) into fixed-length conversion windows.
// The final segment may be shorter. A non-positive duration yields no
// segments; directly-usable audio inputs never reach the planner at all.
func PlanSegments(durationSeconds, segmentSeconds float64) []Segment {
	if durationSeconds <= 0 {
		return nil
	}
	if segmentSeconds <= 0 {
		segmentSeconds = DefaultSegmentSeconds
	}

	var segments []Segment
	for start := 0.0; start < durationSeconds; start += segmentSeconds {
		end := start + segmentSeconds
		if end > durationSeconds {
			end = durationSeconds
		}
		segments = append(segments, Segment{
			Index:        len(segments),
			StartSeconds: start,
			EndSeconds:   end,
			State:        SegmentPending,
		})
	}
	return segments
}
