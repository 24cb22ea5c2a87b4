// Package disasm implements the Function Analyzer (component B): given a
// binaryindex.Index and a function, it disassembles the function's body,
// classifies every call instruction it finds, and groups the surviving
// ones by source line into a FrameInfo.
package disasm
