package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/cellbook/cellbook/internal/config"
	"github.com/cellbook/cellbook/internal/document"
	"github.com/cellbook/cellbook/internal/editor"
	"github.com/cellbook/cellbook/internal/kernel"
	"github.com/cellbook/cellbook/internal/kvstore"
	"github.com/cellbook/cellbook/internal/listview"
	"github.com/cellbook/cellbook/internal/log"
	"github.com/cellbook/cellbook/internal/storage"
)

func notebookPath() string {
	return filepath.Join(chdir, fileName)
}

func readDocument() (*document.Document, error) {
	data, err := os.ReadFile(notebookPath())
	if err != nil {
		return nil, errors.Wrapf(err, "read notebook %s", notebookPath())
	}
	return storage.Deserialize(data)
}

// docType derives the document type used for kernel affinity from the
// notebook file extension.
func docType() string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "notebook"
	}
	return "notebook" + ext
}

// attachEditor builds the application services and attaches a
// controller to the notebook on disk. The returned cleanup detaches the
// controller and closes the preference store.
func attachEditor(ctx context.Context, cfg *config.Config) (*editor.Controller, func(), error) {
	doc, err := readDocument()
	if err != nil {
		return nil, nil, err
	}

	registry := kernel.NewRegistry()
	if err := registry.Register(kernel.NewLocalKernel(log.Get())); err != nil {
		return nil, nil, err
	}

	prefs, err := kvstore.Open(filepath.Join(chdir, ".cellbook.db"))
	if err != nil {
		return nil, nil, err
	}

	var rules []kernel.AffinityRule
	for _, a := range cfg.KernelAffinity {
		rule, err := kernel.CompileAffinity(a.DocumentType, a.Provider)
		if err != nil {
			_ = prefs.Close()
			return nil, nil, err
		}
		rules = append(rules, rule)
	}

	ctrl := editor.NewController(editor.Services{
		Kernels: registry,
		Prefs:   prefs,
		Rules:   rules,
		ListOptions: listview.Options{
			DefaultCellHeight: cfg.DefaultCellHeight,
			Overscan:          cfg.Overscan,
			ViewportHeight:    800,
		},
		Logger: log.Get(),
	})
	if err := ctrl.Attach(ctx, doc, docType(), ""); err != nil {
		_ = prefs.Close()
		return nil, nil, err
	}
	cleanup := func() {
		ctrl.Detach()
		_ = prefs.Close()
	}
	return ctrl, cleanup, nil
}
