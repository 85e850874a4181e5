package stor

import (
	"github.com/hashicorp/go-uuid"
	"github.com/kit-data-manager/staging/pkg/stagedb/model"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type GormProcessorStor struct {
	db *gorm.DB
}

func NewGormProcessorStor(db *gorm.DB) *GormProcessorStor {
	return &GormProcessorStor{db: db}
}

// CreateProcessor registers a processor definition, filling in its unique
// identifier if the caller left it empty.
func (s *GormProcessorStor) CreateProcessor(processor *model.StagingProcessor) (*model.StagingProcessor, error) {
	var err error

	if processor.UniqueIdentifier == "" {
		if processor.UniqueIdentifier, err = uuid.GenerateUUID(); err != nil {
			return nil, err
		}
	}

	err = WithTxRetry(s.db, func(tx *gorm.DB) error {
		return tx.Create(processor).Error
	})
	if err != nil {
		return nil, err
	}

	return processor, nil
}

func (s *GormProcessorStor) GetProcessorByIdentifier(uniqueIdentifier string) (*model.StagingProcessor, error) {
	var processor model.StagingProcessor
	err := s.db.Where("unique_identifier = ?", uniqueIdentifier).First(&processor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "no staging processor %s", uniqueIdentifier)
	}
	if err != nil {
		return nil, err
	}
	return &processor, nil
}

func (s *GormProcessorStor) FindProcessorsForGroup(groupID string) ([]model.StagingProcessor, error) {
	var processors []model.StagingProcessor
	err := s.db.Where("group_id = ? OR group_id = ''", groupID).Find(&processors).Error
	return processors, err
}

// FindDefaultProcessorsForGroup returns the enabled processors of the group
// that are switched on by default and support the given transfer direction.
func (s *GormProcessorStor) FindDefaultProcessorsForGroup(groupID string, kind model.Kind) ([]model.StagingProcessor, error) {
	processors, err := s.FindProcessorsForGroup(groupID)
	if err != nil {
		return nil, err
	}

	var defaults []model.StagingProcessor
	for _, p := range processors {
		if p.DefaultOn && !p.Disabled && p.AppliesTo(kind) {
			defaults = append(defaults, p)
		}
	}
	return defaults, nil
}
