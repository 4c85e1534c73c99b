package browse

import (
	"sort"
	"strings"

	"github.com/opendatath/catalog/internal/catalog/schema"
)

// Fallback labels for organizations that match no keyword or province.
const (
	OtherOrgType    = "อื่นๆ"
	UnknownProvince = "ไม่ระบุจังหวัด"
)

// orgTypeKeywords is checked in order; the first substring hit wins, so
// "กระทรวง" must precede "กรม".
var orgTypeKeywords = []string{
	"กระทรวง",
	"กรม",
	"มหาวิทยาลัย",
	"สำนักงาน",
	"องค์การ",
	"บริษัท",
	"ธนาคาร",
}

// Provinces lists Thailand's 77 provinces in Thai alphabetical order.
var Provinces = []string{
	"กรุงเทพมหานคร", "กระบี่", "กาญจนบุรี", "กาฬสินธุ์", "กำแพงเพชร", "ขอนแก่น", "จันทบุรี", "ฉะเชิงเทรา", "ชลบุรี",
	"ชัยนาท", "ชัยภูมิ", "ชุมพร", "เชียงราย", "เชียงใหม่", "ตรัง", "ตราด", "ตาก", "นครนายก", "นครปฐม", "นครพนม",
	"นครราชสีมา", "นครศรีธรรมราช", "นครสวรรค์", "นนทบุรี", "นราธิวาส", "น่าน", "บึงกาฬ", "บุรีรัมย์", "ปทุมธานี",
	"ประจวบคีรีขันธ์", "ปราจีนบุรี", "ปัตตานี", "พระนครศรีอยุธยา", "พะเยา", "พังงา", "พัทลุง", "พิจิตร", "พิษณุโลก", "เพชรบุรี",
	"เพชรบูรณ์", "แพร่", "ภูเก็ต", "มหาสารคาม", "มุกดาหาร", "แม่ฮ่องสอน", "ยโสธร", "ยะลา", "ร้อยเอ็ด", "ระนอง",
	"ระยอง", "ราชบุรี", "ลพบุรี", "ลำปาง", "ลำพูน", "เลย", "ศรีสะเกษ", "สกลนคร", "สงขลา", "สตูล", "สมุทรปราการ",
	"สมุทรสงคราม", "สมุทรสาคร", "สระแก้ว", "สระบุรี", "สิงห์บุรี", "สุโขทัย", "สุพรรณบุรี", "สุราษฎร์ธานี", "สุรินทร์",
	"หนองคาย", "หนองบัวลำภู", "อ่างทอง", "อำนาจเจริญ", "อุดรธานี", "อุตรดิตถ์", "อุทัยธานี", "อุบลราชธานี",
}

// OrgType classifies an organization name by keyword.
func OrgType(name string) string {
	name = strings.ToLower(name)
	for _, kw := range orgTypeKeywords {
		if strings.Contains(name, kw) {
			return kw
		}
	}
	return OtherOrgType
}

// Province returns the first province named inside the organization name.
func Province(name string) string {
	for _, p := range Provinces {
		if strings.Contains(name, p) {
			return p
		}
	}
	return UnknownProvince
}

// Organization summarizes one publisher.
type Organization struct {
	Name          string `json:"name"`
	DatasetCount  int    `json:"dataset_count"`
	SamplePackage string `json:"sample_package_id"` // smallest package id
	Type          string `json:"type"`
	Province      string `json:"province"`
}

// OrgFilter narrows an organization list. Empty fields match everything.
type OrgFilter struct {
	Search   string
	Type     string
	Province string
}

// Organizations groups datasets by organization, ordered by dataset count
// descending then name. Datasets without an organization are skipped.
func Organizations(datasets []*schema.Dataset) []Organization {
	byName := make(map[string]*Organization)
	for _, d := range datasets {
		if d.Organization == "" {
			continue
		}
		o, ok := byName[d.Organization]
		if !ok {
			o = &Organization{
				Name:          d.Organization,
				SamplePackage: d.PackageID,
				Type:          OrgType(d.Organization),
				Province:      Province(d.Organization),
			}
			byName[d.Organization] = o
		}
		o.DatasetCount++
		if d.PackageID < o.SamplePackage {
			o.SamplePackage = d.PackageID
		}
	}

	out := make([]Organization, 0, len(byName))
	for _, o := range byName {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DatasetCount != out[j].DatasetCount {
			return out[i].DatasetCount > out[j].DatasetCount
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Apply returns the organizations matching f.
func (f OrgFilter) Apply(orgs []Organization) []Organization {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]Organization, 0, len(orgs))
	for _, o := range orgs {
		if search != "" && !strings.Contains(strings.ToLower(o.Name), search) {
			continue
		}
		if f.Type != "" && o.Type != f.Type {
			continue
		}
		if f.Province != "" && o.Province != f.Province {
			continue
		}
		out = append(out, o)
	}
	return out
}
