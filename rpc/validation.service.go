package rpc

import "strings"

type ValidationServiceConfig struct {
	AvailableProducts []string
}

type ValidationService struct {
	config *ValidationServiceConfig
}

func NewValidationService(config *ValidationServiceConfig) *ValidationService {
	return &ValidationService{
		config: config,
	}
}

func (s *ValidationService) IsSupportedProduct(productID string) bool {
	for _, p := range s.config.AvailableProducts {
		if strings.EqualFold(p, productID) {
			return true
		}
	}
	return false
}

func (s *ValidationService) AvailableProducts() []string {
	return append([]string(nil), s.config.AvailableProducts...)
}
