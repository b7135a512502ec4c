package main

import (
	"fmt"
	"strconv"
	"strings"

	"imagepipe/internal/imagepipe"
	"imagepipe/internal/imageproc"
)

// parseProcessors turns repeated --processor flags ("grayscale",
// "resize:WIDTHxHEIGHT") into a ProcessorChain applied in flag order.
func parseProcessors(specs []string) (imagepipe.ProcessorChain, error) {
	chain := make(imagepipe.ProcessorChain, 0, len(specs))
	for _, spec := range specs {
		name, arg, _ := strings.Cut(spec, ":")
		switch name {
		case "grayscale":
			chain = append(chain, imageproc.Grayscale{})
		case "resize":
			w, h, err := parseDimensions(arg)
			if err != nil {
				return nil, fmt.Errorf("--processor resize: %w", err)
			}
			chain = append(chain, imageproc.Resize{Width: w, Height: h})
		default:
			return nil, fmt.Errorf("--processor: unknown processor %q", name)
		}
	}
	return chain, nil
}

func parseDimensions(arg string) (int, int, error) {
	w, h, ok := strings.Cut(arg, "x")
	if !ok {
		return 0, 0, fmt.Errorf("expected WIDTHxHEIGHT, got %q", arg)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid width %q: %w", w, err)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid height %q: %w", h, err)
	}
	return width, height, nil
}
