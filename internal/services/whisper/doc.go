// Package whisper runs whisperx (via uvx) for the transcription stage:
// audio preparation with ffmpeg, transcription, and segment loading for
// downstream analysis.
package whisper
