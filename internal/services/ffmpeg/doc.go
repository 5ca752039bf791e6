// Package ffmpeg wraps the ffmpeg and ffprobe command-line tools as the
// pipeline's codec engine: duration probing, per-segment audio conversion
// with streamed progress, and segment concatenation.
package ffmpeg
