// Package media merges a user's queued files into one artifact.
//
// Images are decoded with the standard codecs plus WebP and stitched onto a
// white canvas. Videos are probed with ffprobe and concatenated by ffmpeg.
//
// Primary entry point:
//   - Engine.Process: dispatches on the first file's extension and returns a
//     Result or a *Failure describing why no artifact was produced.
package media
