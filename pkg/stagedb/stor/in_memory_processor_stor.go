package stor

import (
	"github.com/hashicorp/go-uuid"
	"github.com/kit-data-manager/staging/pkg/stagedb/model"
	"github.com/pkg/errors"
)

type InMemoryProcessorStor struct {
	ErrToReturn error
	Processors  []model.StagingProcessor
	lastID      int64
}

func NewInMemoryProcessorStor(processors []model.StagingProcessor) *InMemoryProcessorStor {
	return &InMemoryProcessorStor{Processors: processors, lastID: 100}
}

func (s *InMemoryProcessorStor) CreateProcessor(processor *model.StagingProcessor) (*model.StagingProcessor, error) {
	if s.ErrToReturn != nil {
		return nil, s.ErrToReturn
	}

	var err error
	if processor.UniqueIdentifier == "" {
		if processor.UniqueIdentifier, err = uuid.GenerateUUID(); err != nil {
			return nil, err
		}
	}

	s.lastID++
	processor.ID = s.lastID
	s.Processors = append(s.Processors, *processor)
	return processor, nil
}

func (s *InMemoryProcessorStor) GetProcessorByIdentifier(uniqueIdentifier string) (*model.StagingProcessor, error) {
	for i := range s.Processors {
		if s.Processors[i].UniqueIdentifier == uniqueIdentifier {
			result := s.Processors[i]
			return &result, nil
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "no staging processor %s", uniqueIdentifier)
}

func (s *InMemoryProcessorStor) FindProcessorsForGroup(groupID string) ([]model.StagingProcessor, error) {
	if s.ErrToReturn != nil {
		return nil, s.ErrToReturn
	}

	var result []model.StagingProcessor
	for _, p := range s.Processors {
		if p.GroupID == groupID || p.GroupID == "" {
			result = append(result, p)
		}
	}
	return result, nil
}

func (s *InMemoryProcessorStor) FindDefaultProcessorsForGroup(groupID string, kind model.Kind) ([]model.StagingProcessor, error) {
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
