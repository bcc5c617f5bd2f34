package handlers

import (
	"github.com/feichai0017/numbers2pdf/internal/service/conversion"
	"github.com/feichai0017/numbers2pdf/internal/utils/validator"
	"github.com/feichai0017/numbers2pdf/pkg/logger"
)

type Handlers struct {
	Conversion *ConversionHandler
	Health     *HealthHandler
}

func NewHandlers(
	service conversion.ConversionProcessor,
	uploadValidator *validator.UploadValidator,
	logger logger.Logger,
) *Handlers {
	return &Handlers{
		Conversion: NewConversionHandler(service, uploadValidator, logger),
		Health:     NewHealthHandler(),
	}
}
