// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"fhirq/cli/internal/backend"
	"fhirq/cli/internal/errors"
	"fhirq/cli/internal/progress"
)

var (
	uploadName      string
	uploadOverwrite bool
	downloadDir     string
	filesFolder     string
	filesPageSize   int
	filesNext       string
	mvName          string
	mvProject       string
)

var uploadCmd = &cobra.Command{
	Use:   "upload <path>",
	Short: "Upload a file to the project",
	Long: `upload stores a local file in the current project. Files larger than 5 MiB are
sent in parts of at least 5 MiB each, at most 10000 parts.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		project, err := a.project()
		if err != nil {
			return err
		}
		st, err := os.Stat(args[0])
		if err != nil {
			return errors.Wrap(errors.Validation, "upload source", err)
		}

		var (
			r    *progress.Renderer
			stop = func() {}
		)
		opts := backend.UploadOptions{Name: uploadName, Overwrite: uploadOverwrite}
		if st.Size() > backend.MultipartMinSize {
			r = progress.Start(filepath.Base(args[0]), "parts", flagQuiet)
			r.State().SetTotal(backend.PlanParts(st.Size()).Parts)
			opts.OnPart = r.OnPart
		} else {
			stop = startInlineSpinner(os.Stdout, "Uploading "+filepath.Base(args[0]), spinnerFrames, 120*time.Millisecond)
		}
		f, err := a.client.Upload(cmd.Context(), project, args[0], opts)
		stop()
		if r != nil {
			r.Stop(false)
		}
		if err != nil {
			return err
		}
		pterm.Success.Printfln("Uploaded %s as %s (%s)", args[0], f.Name, f.ID)
		return nil
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download <file-id>",
	Short: "Download a file by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		path, err := a.client.Download(cmd.Context(), args[0], downloadDir)
		if err != nil {
			return err
		}
		pterm.Success.Printfln("Saved %s", path)
		return nil
	},
}

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List, move and delete project files",
}

var filesLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List files in the project",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		project, err := a.project()
		if err != nil {
			return err
		}
		list, err := a.client.ListFiles(cmd.Context(), project, backend.ListOptions{
			Folder:        filesFolder,
			PageSize:      filesPageSize,
			NextPageToken: filesNext,
		})
		if err != nil {
			return err
		}
		data := [][]string{{"id", "name", "size"}}
		for _, f := range list.Items {
			data = append(data, []string{f.ID, f.Name, strconv.FormatInt(f.Size, 10)})
		}
		if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
			return err
		}
		if list.NextPageToken != "" {
			pterm.Info.Printfln("More files: --next %s", list.NextPageToken)
		}
		return nil
	},
}

var filesRmCmd = &cobra.Command{
	Use:   "rm <file-id>",
	Short: "Delete a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		ok, err := a.client.DeleteFile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			return errors.Newf(errors.Transport, "file %s was not deleted", args[0])
		}
		pterm.Success.Printfln("Deleted %s", args[0])
		return nil
	},
}

var filesMvCmd = &cobra.Command{
	Use:   "mv <file-id>",
	Short: "Rename a file or move it to another project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		f, err := a.client.UpdateFile(cmd.Context(), args[0], backend.FileUpdate{Name: mvName, DatasetID: mvProject})
		if err != nil {
			return err
		}
		pterm.Success.Printfln("%s is now %s in %s", f.ID, f.Name, f.DatasetID)
		return nil
	},
}

func init() {
	uploadCmd.Flags().StringVar(&uploadName, "name", "", "stored file name (default: base name of <path>)")
	uploadCmd.Flags().BoolVar(&uploadOverwrite, "overwrite", false, "replace an existing file with the same name")
	downloadCmd.Flags().StringVar(&downloadDir, "dir", ".", "directory to save into")
	filesLsCmd.Flags().StringVar(&filesFolder, "folder", "", "only files under this folder")
	filesLsCmd.Flags().IntVar(&filesPageSize, "page-size", 100, "files per page")
	filesLsCmd.Flags().StringVar(&filesNext, "next", "", "page token from a previous listing")
	filesMvCmd.Flags().StringVar(&mvName, "name", "", "new file name")
	filesMvCmd.Flags().StringVar(&mvProject, "to-project", "", "project to move the file to")

	filesCmd.AddCommand(filesLsCmd, filesRmCmd, filesMvCmd)
	rootCmd.AddCommand(uploadCmd, downloadCmd, filesCmd)
}
