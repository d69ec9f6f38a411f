package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/avvvet/electionday-services/internal/electionsvc/formats"
	"github.com/avvvet/electionday-services/internal/electionsvc/models"
	"github.com/avvvet/electionday-services/internal/electionsvc/principal"
	"github.com/avvvet/electionday-services/internal/electionsvc/store"
)

// Upload formats.
const (
	FormatInternal      = "internal"
	FormatWabstiC       = "wabsti_c"
	FormatWabsti        = "wabsti"
	FormatPartyInternal = "party_internal"
)

// Upload fields of the single file formats and the legacy Wabsti format.
const (
	FileResults     = "results"
	FileConnections = "connections"
	FileElected     = "elected"
	FileStatistics  = "statistics"
	FileGeschaefte  = "sg_geschaefte"
	FileGemeinden   = "sg_gemeinden"
)

var (
	ErrUnknownPrincipal = errors.New("unknown principal")
	ErrUnknownFormat    = errors.New("unknown format")
	ErrNotFound         = store.ErrNotFound
)

// ImportRequest is one upload of result files.
type ImportRequest struct {
	Principal   string
	ID          string
	Format      string
	Number      string
	District    string
	IgnoreExtra bool
	Files       map[string]formats.Upload
}

type ImportService struct {
	votes         VoteStore
	elections     ElectionStore
	principals    map[string]*principal.Principal
	notifier      Notifier
	metrics       *Metrics
	locales       []string
	defaultLocale string
}

func NewImportService(votes VoteStore, elections ElectionStore, principals map[string]*principal.Principal,
	notifier Notifier, metrics *Metrics, locales []string) *ImportService {
	s := &ImportService{
		votes:      votes,
		elections:  elections,
		principals: principals,
		notifier:   notifier,
		metrics:    metrics,
		locales:    locales,
	}
	if len(locales) > 0 {
		s.defaultLocale = locales[0]
	}
	return s
}

func (s *ImportService) Principal(id string) (*principal.Principal, error) {
	p, ok := s.principals[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPrincipal, id)
	}
	return p, nil
}

// ImportVote runs the importer of the requested format and replaces the
// results of the vote if the files contain no errors. Data errors are
// returned as the first value and leave the stored vote untouched.
func (s *ImportService) ImportVote(ctx context.Context, req ImportRequest) ([]formats.FileImportError, error) {
	start := time.Now()
	p, err := s.Principal(req.Principal)
	if err != nil {
		return nil, err
	}

	vote, err := s.votes.GetVote(ctx, req.Principal, req.ID)
	if err != nil {
		return nil, fmt.Errorf("load vote %s: %w", req.ID, err)
	}

	var errs []formats.FileImportError
	switch req.Format {
	case FormatInternal:
		results, missing := requireFiles(req.Files, FileResults)
		if missing != nil {
			errs = missing
			break
		}
		errs = formats.ImportVoteInternal(vote, p, results[0].Body, results[0].Mimetype)
	case FormatWabstiC:
		files, missing := requireFiles(req.Files, FileGeschaefte, FileGemeinden)
		if missing != nil {
			errs = missing
			break
		}
		errs = formats.ImportVoteWabstiC(vote, p, req.Number, req.District,
			files[0].Body, files[0].Mimetype, files[1].Body, files[1].Mimetype)
	default:
		return nil, fmt.Errorf("%w: %s for votes", ErrUnknownFormat, req.Format)
	}

	if len(errs) > 0 {
		s.observe(models.KindVote, req.Format, outcomeRejected, start, len(errs))
		return errs, nil
	}

	if err := s.votes.ReplaceResults(ctx, vote); err != nil {
		s.observe(models.KindVote, req.Format, outcomeFailed, start, 0)
		return nil, fmt.Errorf("replace vote results: %w", err)
	}
	s.observe(models.KindVote, req.Format, outcomeImported, start, 0)
	s.publish(models.Changed{Kind: models.KindVote, ID: vote.ID, Principal: p.ID, LastModified: vote.LastModified})
	return nil, nil
}

// ImportElection is ImportVote for elections. The party_internal format
// only replaces the party results of proporz elections.
func (s *ImportService) ImportElection(ctx context.Context, req ImportRequest) ([]formats.FileImportError, error) {
	start := time.Now()
	p, err := s.Principal(req.Principal)
	if err != nil {
		return nil, err
	}

	election, err := s.elections.GetElection(ctx, req.Principal, req.ID)
	if err != nil {
		return nil, fmt.Errorf("load election %s: %w", req.ID, err)
	}

	errs, err := s.runElectionImporter(election, p, req)
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		s.observe(models.KindElection, req.Format, outcomeRejected, start, len(errs))
		return errs, nil
	}

	if err := s.elections.ReplaceResults(ctx, election); err != nil {
		s.observe(models.KindElection, req.Format, outcomeFailed, start, 0)
		return nil, fmt.Errorf("replace election results: %w", err)
	}
	s.observe(models.KindElection, req.Format, outcomeImported, start, 0)
	s.publish(models.Changed{Kind: models.KindElection, ID: election.ID, Principal: p.ID, LastModified: election.LastModified})
	return nil, nil
}

func (s *ImportService) runElectionImporter(election *models.ProporzElection, p *principal.Principal, req ImportRequest) ([]formats.FileImportError, error) {
	proporz := election.IsProporz()

	switch req.Format {
	case FormatInternal:
		files, missing := requireFiles(req.Files, FileResults)
		if missing != nil {
			return missing, nil
		}
		if proporz {
			return formats.ImportElectionInternalProporz(election, p, files[0].Body, files[0].Mimetype, req.IgnoreExtra), nil
		}
		return formats.ImportElectionInternalMajorz(&election.Election, p, files[0].Body, files[0].Mimetype), nil

	case FormatWabstiC:
		if proporz {
			return formats.ImportElectionWabstiCProporz(election, p, req.Number, req.District, req.Files), nil
		}
		return formats.ImportElectionWabstiCMajorz(&election.Election, p, req.Number, req.District, req.Files), nil

	case FormatWabsti:
		if !proporz || !p.WabstiImport {
			return nil, fmt.Errorf("%w: %s is not enabled for this election", ErrUnknownFormat, req.Format)
		}
		files, missing := requireFiles(req.Files, FileResults)
		if missing != nil {
			return missing, nil
		}
		return formats.ImportElectionWabstiProporz(election, p, formats.WabstiProporzUploads{
			Results:     files[0],
			Connections: req.Files[FileConnections],
			Elected:     req.Files[FileElected],
			Statistics:  req.Files[FileStatistics],
		}), nil

	case FormatPartyInternal:
		if !proporz {
			return nil, fmt.Errorf("%w: %s requires a proporz election", ErrUnknownFormat, req.Format)
		}
		files, missing := requireFiles(req.Files, FileResults)
		if missing != nil {
			return missing, nil
		}
		return formats.ImportPartyResultsInternal(election, p, files[0].Body, files[0].Mimetype, s.locales, s.defaultLocale), nil
	}
	return nil, fmt.Errorf("%w: %s for elections", ErrUnknownFormat, req.Format)
}

// requireFiles returns the named uploads in order, or one error per
// missing upload.
func requireFiles(files map[string]formats.Upload, names ...string) ([]formats.Upload, []formats.FileImportError) {
	var out []formats.Upload
	var missing []formats.FileImportError
	for _, name := range names {
		u, ok := files[name]
		if !ok || u.Body == nil {
			missing = append(missing, formats.FileImportError{Filename: name, Error: "No file uploaded"})
			continue
		}
		out = append(out, u)
	}
	return out, missing
}

func (s *ImportService) observe(kind, format, outcome string, start time.Time, errs int) {
	if s.metrics == nil {
		return
	}
	s.metrics.importsTotal.WithLabelValues(kind, format, outcome).Inc()
	s.metrics.importDuration.WithLabelValues(kind, format).Observe(time.Since(start).Seconds())
	if errs > 0 {
		s.metrics.importErrorsTotal.WithLabelValues(kind, format).Add(float64(errs))
	}
}

// publish is best effort, the results are already stored.
func (s *ImportService) publish(changed models.Changed) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishChanged(changed); err != nil {
		log.Errorf("failed to publish %s %s change: %v", changed.Kind, changed.ID, err)
	}
}
