package handlers

import (
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"storefront/internal/middleware"
)

const (
	maxImageSize  = 5 << 20
	uploadURLPath = "/uploads"
)

var allowedImageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
}

var errInvalidImage = errors.New("invalid image")

// UploadImage stores one multipart "image" file under uploadDir and
// returns its public path.
func UploadImage(uploadDir string) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/upload"

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImageSize+(1<<20))

		file, err := c.FormFile("image")
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "image file is required")
			return
		}

		imagePath, err := saveImage(file, uploadDir)
		if errors.Is(err, errInvalidImage) {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}
		if err != nil {
			respondInternalError(c, route, err)
			return
		}

		middleware.Logger(c).Info("Image uploaded", zap.String("path", imagePath), zap.Int64("size", file.Size))
		c.JSON(http.StatusCreated, gin.H{"message": "image uploaded", "image": imagePath})
	}
}

func saveImage(file *multipart.FileHeader, dir string) (string, error) {
	extension := strings.ToLower(filepath.Ext(file.Filename))
	if extension == "" {
		return "", errors.Wrap(errInvalidImage, "image file extension is required")
	}
	if _, ok := allowedImageExtensions[extension]; !ok {
		return "", errors.Wrapf(errInvalidImage, "unsupported image type %s", extension)
	}
	if file.Size > maxImageSize {
		return "", errors.Wrap(errInvalidImage, "image file too large (max 5MB)")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create upload dir %s", dir)
	}

	filename := "image-" + primitive.NewObjectID().Hex() + extension
	fullPath := filepath.Join(dir, filename)

	in, err := file.Open()
	if err != nil {
		return "", errors.Wrap(err, "open upload")
	}
	defer in.Close()

	out, err := os.Create(fullPath)
	if err != nil {
		return "", errors.Wrap(err, "create image file")
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(fullPath)
		return "", errors.Wrap(err, "write image file")
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(fullPath)
		return "", errors.Wrap(err, "close image file")
	}

	return path.Join(uploadURLPath, filename), nil
}

// safeDeleteUpload removes a file previously returned by saveImage. Paths
// outside uploadDir are refused and anything not under /uploads is ignored.
func safeDeleteUpload(uploadDir, publicPath string) error {
	trimmed := strings.TrimSpace(publicPath)
	if trimmed == "" {
		return nil
	}

	cleanRel := path.Clean("/" + strings.TrimPrefix(trimmed, "/"))
	if !strings.HasPrefix(cleanRel, uploadURLPath+"/") {
		return nil
	}
	cleanRel = strings.TrimPrefix(cleanRel, uploadURLPath+"/")

	cleanBase, err := filepath.Abs(uploadDir)
	if err != nil {
		return err
	}
	cleanTarget := filepath.Clean(filepath.Join(cleanBase, filepath.FromSlash(cleanRel)))
	if !strings.HasPrefix(cleanTarget, cleanBase+string(os.PathSeparator)) {
		return errors.Errorf("refusing to delete path outside upload dir: %s", publicPath)
	}

	if err := os.Remove(cleanTarget); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
