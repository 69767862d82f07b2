package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/audiolibrelab/pcmrecorder/internal/service"
)

// executePipeline runs the pipeline steps that follow startStep, so that
// 'record -p rpe' plays and exports the recording it just made.
func executePipeline(svc service.Service, startStep rune) error {
	if pipeline == "" {
		return nil
	}

	steps := strings.ToLower(pipeline)

	// Find the starting position in the pipeline
	startIndex := strings.IndexRune(steps, startStep)
	if startIndex == -1 {
		return fmt.Errorf("step '%c' not found in pipeline '%s'", startStep, pipeline)
	}

	remaining := steps[startIndex+1:]
	if remaining == "" {
		return nil
	}

	fmt.Printf("Pipeline: executing remaining steps '%s'...\n", remaining)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := svc.RunPipeline(ctx, remaining, 0); err != nil {
		return err
	}
	fmt.Println("Pipeline: completed")
	return nil
}

func validatePipeline() error {
	if pipeline == "" {
		return nil
	}

	validSteps := map[rune]bool{
		'r': true, // record
		'p': true, // play
		'e': true, // export
	}

	steps := []rune(strings.ToLower(pipeline))
	for _, step := range steps {
		if !validSteps[step] {
			return fmt.Errorf("invalid pipeline step: '%c' (valid: r=record, p=play, e=export)", step)
		}
	}

	return nil
}
