package main

import (
	"fmt"
	"time"

	"github.com/dshills/reposcope-mcp/internal/analyzer"
)

func printReport(r *analyzer.Report) {
	fmt.Printf("Repository:     %s\n", r.Root)
	fmt.Printf("Folder:         %s\n", r.Folder)
	fmt.Printf("Files indexed:  %d (skipped %d, failed %d)\n", r.FilesIndexed, r.FilesSkipped, r.FilesFailed)
	fmt.Printf("Chunks:         %d\n", r.Chunks)
	if r.Batch != nil {
		printBatch(r.Batch)
	}
}

func printBatch(b *analyzer.BatchResult) {
	fmt.Printf("Status:         %s\n", b.Status)
	fmt.Printf("Succeeded:      %d/%d\n", len(b.Succeeded), b.Total)
	fmt.Printf("Documents:      %d\n", b.Documents)
	fmt.Printf("Duration:       %s\n", b.Duration.Round(time.Millisecond))
	for _, f := range b.Failed {
		fmt.Printf("  failed %s: %s\n", f.ChunkID, f.Error)
	}
}
