package campaign

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

type quotaFile struct {
	Quotas []SourceQuota `yaml:"quotas"`
}

// LoadQuotas reads the source-quota table from a YAML file:
//
//	quotas:
//	  - category: empresa
//	    source: pncp
//	    quota: 20
//	  - category: contabilidade
//	    source: pncp
//	    quota: 5
//
// Order in the file is selection priority.
func LoadQuotas(path string) ([]SourceQuota, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "campaign: read quota file %s", path)
	}
	var f quotaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "campaign: parse quota file %s", path)
	}
	if len(f.Quotas) == 0 {
		return nil, eris.Errorf("campaign: quota file %s defines no quotas", path)
	}
	return f.Quotas, nil
}
