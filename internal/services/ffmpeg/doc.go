// Package ffmpeg shells out to ffmpeg/ffprobe for media inspection, clip
// cutting, concatenation, and audio overlay.
package ffmpeg
