// Package dedup rejects near-duplicate screenshots within a run.
//
// Each artifact is fingerprinted with a 256-bit difference hash (a 17x16
// luminance thumbnail compared pixel to pixel). An artifact is a duplicate
// when the Hamming distance to any previously accepted fingerprint is below
// the threshold. The first artifact seen wins, so the result depends only on
// the order artifacts are offered.
package dedup
