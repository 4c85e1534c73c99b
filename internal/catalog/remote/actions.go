package remote

import (
	"context"
	"net/url"
)

// Package is the subset of a CKAN package_show result the catalog uses.
type Package struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Title            string            `json:"title"`
	URL              string            `json:"url"`
	MetadataModified string            `json:"metadata_modified"`
	Organization     *Organization     `json:"organization"`
	Resources        []PackageResource `json:"resources"`
}

// OrganizationTitle returns the organization's title, or "" when the package
// has none.
func (p *Package) OrganizationTitle() string {
	if p.Organization == nil {
		return ""
	}
	return p.Organization.Title
}

// Organization is a CKAN organization.
type Organization struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	PackageCount int    `json:"package_count"`
}

// PackageResource is one resource entry of a package.
type PackageResource struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Format      string `json:"format"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// PackageShow fetches one package by id or name.
func (c *Client) PackageShow(ctx context.Context, id string) (*Package, error) {
	var pkg Package
	if err := c.Call(ctx, "package_show", url.Values{"id": {id}}, &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// SiteRead checks that the catalog is reachable and the token accepted.
func (c *Client) SiteRead(ctx context.Context) error {
	return c.Call(ctx, "site_read", nil, nil)
}

// OrganizationList returns the names of all organizations.
func (c *Client) OrganizationList(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.Call(ctx, "organization_list", nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// OrganizationShow fetches one organization by id or name.
func (c *Client) OrganizationShow(ctx context.Context, id string) (*Organization, error) {
	var org Organization
	if err := c.Call(ctx, "organization_show", url.Values{"id": {id}}, &org); err != nil {
		return nil, err
	}
	return &org, nil
}
