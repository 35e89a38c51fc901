// Package tts shells out to piper for the speech_synthesis stage.
package tts
