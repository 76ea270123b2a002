package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/haivivi/nova/pkg/cli"
	"github.com/haivivi/nova/pkg/gemini"
	"github.com/haivivi/nova/pkg/storage"
)

var imageFlags struct {
	aspect string
	out    string
}

// imageResult is printed after an image was saved.
type imageResult struct {
	Location string `json:"location" yaml:"location"`
	MIMEType string `json:"mime_type" yaml:"mime_type"`
	Size     string `json:"size" yaml:"size"`
	Aspect   string `json:"aspect" yaml:"aspect"`
}

var imageCmd = &cobra.Command{
	Use:   "image <prompt>",
	Short: "Generate an image",
	Long: `Generate an image from a prompt.

Without --out the image is saved to the context's image store: the S3 bucket
named by s3_bucket, or the image_dir directory (default
~/.giztoy/nova/images).

Examples:
  nova image "a paper boat on a puddle"
  nova image --aspect 9:16 --out boat.png "a paper boat on a puddle"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, cctx, err := loadContext()
		if err != nil {
			return err
		}
		aspect, err := gemini.ParseAspectRatio(imageFlags.aspect)
		if err != nil {
			return err
		}
		client, err := newClient(cctx)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		img, err := client.GenerateImage(ctx, strings.Join(args, " "), aspect)
		if err != nil {
			if errors.Is(err, gemini.ErrNoImage) {
				return fmt.Errorf("%s", gemini.MessageNoImage)
			}
			return err
		}

		var (
			store storage.Store
			name  string
		)
		if imageFlags.out != "" {
			store, err = storage.NewLocal(filepath.Dir(imageFlags.out))
			name = filepath.Base(imageFlags.out)
		} else {
			store, err = imageStore(cfg, cctx)
			name = uuid.NewString() + img.Ext()
		}
		if err != nil {
			return err
		}
		loc, err := store.Put(ctx, name, img.MIMEType, img.Data)
		if err != nil {
			return err
		}
		return printResult(cmd, imageResult{
			Location: loc,
			MIMEType: img.MIMEType,
			Size:     cli.FormatBytes(int64(len(img.Data))),
			Aspect:   string(aspect),
		})
	},
}

func init() {
	imageCmd.Flags().StringVar(&imageFlags.aspect, "aspect", "1:1", "aspect ratio: 1:1, 16:9, 9:16")
	imageCmd.Flags().StringVar(&imageFlags.out, "out", "", "write the image to this file")
	rootCmd.AddCommand(imageCmd)
}
