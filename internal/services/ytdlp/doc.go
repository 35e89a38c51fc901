// Package ytdlp shells out to yt-dlp to acquire source media for the
// media_extraction stage.
package ytdlp
