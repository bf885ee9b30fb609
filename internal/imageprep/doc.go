// Package imageprep converts raw screenshots into analysis-ready images.
//
// Transform is a pure function of the input bytes and Options: it fits the
// image inside MaxDimension (never enlarging), then re-encodes it as JPEG,
// stepping the quality down from 85 to 40 and shrinking the image by 10%
// whenever the lowest quality still exceeds MaxBytes.
//
// Because the output depends only on its inputs, results can be cached by
// a digest of the source bytes and the options; see Cache.
package imageprep
