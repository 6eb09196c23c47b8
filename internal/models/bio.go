package models

import "os"

// PhotoHint is shown in place of the portrait when the photo file is missing.
const PhotoHint = "Add a photo to the configured photo path"

type Bio struct {
	Name           string   `json:"name" yaml:"name"`
	Program        string   `json:"program" yaml:"program"`
	Intro          string   `json:"intro" yaml:"intro"`
	FunFacts       []string `json:"funFacts" yaml:"fun_facts"`
	PhotoPath      string   `json:"photoPath" yaml:"photo_path"`
	PhotoAvailable bool     `json:"photoAvailable" yaml:"-"`
	PhotoHint      string   `json:"photoHint,omitempty" yaml:"-"`
}

// ResolvePhoto returns a copy of b with PhotoAvailable set from the filesystem.
func (b Bio) ResolvePhoto() Bio {
	b.PhotoAvailable = false
	b.PhotoHint = ""
	if b.PhotoPath != "" {
		if info, err := os.Stat(b.PhotoPath); err == nil && !info.IsDir() {
			b.PhotoAvailable = true
			return b
		}
	}
	b.PhotoHint = PhotoHint
	return b
}
