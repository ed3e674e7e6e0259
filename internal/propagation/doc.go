// Package propagation writes resolved character names back into the corpus:
// the explicit speaker of each aligned segment and a "<Name>: " prefix on
// every linked cue, followed by a rewrite of the affected subtitle files.
package propagation
